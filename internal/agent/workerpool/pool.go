// Package workerpool is the Agent's Worker Pool (spec C6): N identical
// workers draining the Job Queue, invoking the Command Dispatcher or the
// Notify Handler, and sending ResponseCommand back over the RPC Link.
// Grounded on the teacher's ExecutionQueueService worker loop
// (internal/services/execution_queue.go) but sized and scheduled per the
// spec: Command and Notify jobs share one pool so a burst of hooks cannot
// starve commands, each worker completing one envelope before the next.
package workerpool

import (
	"context"
	"encoding/json"
	"sync"

	"graymoon/internal/agent/jobqueue"
	"graymoon/internal/graymoonerr"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

// Dispatcher is implemented by internal/agent/dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string, argsJSON json.RawMessage) (any, error)
}

// NotifyHandler is implemented by internal/agent/notifyhandler.
type NotifyHandler interface {
	Handle(ctx context.Context, job *models.NotifyJob)
}

// ResponseSender is implemented by the RPC Link.
type ResponseSender interface {
	SendResponse(ctx context.Context, resp rpc.ResponseCommand) error
}

type Pool struct {
	queue      *jobqueue.Queue
	dispatcher Dispatcher
	notify     NotifyHandler
	sender     ResponseSender
	numWorkers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(queue *jobqueue.Queue, dispatcher Dispatcher, notify NotifyHandler, sender ResponseSender, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{queue: queue, dispatcher: dispatcher, notify: notify, sender: sender, numWorkers: numWorkers, ctx: ctx, cancel: cancel}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i + 1)
	}
}

// Stop cancels the workers' context and waits for every worker to exit. A
// worker exits on that cancellation or once the closed Queue is empty, so
// envelopes still buffered when Stop runs may be left unprocessed.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	logging.Debug("agent worker %d started", id)
	defer logging.Debug("agent worker %d stopped", id)

	for {
		select {
		case envelope, ok := <-p.queue.Chan():
			if !ok {
				return
			}
			p.process(envelope)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) process(envelope models.JobEnvelope) {
	switch envelope.Kind {
	case models.JobKindCommand:
		p.processCommand(envelope.Command)
	case models.JobKindNotify:
		p.notify.Handle(p.ctx, envelope.Notify)
	}
}

func (p *Pool) processCommand(job *models.CommandJob) {
	argsJSON, _ := json.Marshal(job.Args)
	result, err := p.dispatcher.Dispatch(p.ctx, job.Command, argsJSON)

	resp := rpc.ResponseCommand{RequestID: job.RequestID}
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		logging.Error("command %s (request %s) failed: kind=%s err=%v", job.Command, job.RequestID, graymoonerr.Classify(err), err)
	} else {
		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			resp.Success = false
			resp.Error = marshalErr.Error()
		} else {
			resp.Success = true
			resp.Data = data
		}
	}

	if err := p.sender.SendResponse(p.ctx, resp); err != nil {
		logging.Error("failed to send response for request %s: %v", job.RequestID, err)
	}
}
