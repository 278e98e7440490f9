// Package projectparser is the Project-File Parser (spec C2): it walks a
// cloned repository for MSBuild-style project descriptors and extracts
// package id, declared package references, and target framework.
package projectparser

import (
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

func readFile(path string) ([]byte, error) { return os.ReadFile(path) }

// msbuildProject is the small subset of a .csproj/.fsproj file this parser needs.
type msbuildProject struct {
	PropertyGroups []struct {
		TargetFramework  string `xml:"TargetFramework"`
		PackageID        string `xml:"PackageId"`
		OutputType       string `xml:"OutputType"`
		IsPackable       string `xml:"IsPackable"`
		IsTestProject    string `xml:"IsTestProject"`
	} `xml:"PropertyGroup"`
	ItemGroups []struct {
		PackageReferences []struct {
			Include string `xml:"Include,attr"`
			Version string `xml:"Version,attr"`
		} `xml:"PackageReference"`
	} `xml:"ItemGroup"`
}

// Parse walks repoDir for *.csproj/*.fsproj files and returns one
// rpc.ProjectInfo per file found.
func Parse(repoDir string) ([]rpc.ProjectInfo, error) {
	var out []rpc.ProjectInfo

	err := filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "bin" || d.Name() == "obj" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".csproj" && ext != ".fsproj" {
			return nil
		}
		info, parseErr := parseFile(repoDir, path)
		if parseErr != nil {
			return fmt.Errorf("parse %s: %w", path, parseErr)
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseFile(repoDir, path string) (rpc.ProjectInfo, error) {
	data, err := readFile(path)
	if err != nil {
		return rpc.ProjectInfo{}, err
	}

	var proj msbuildProject
	if err := xml.Unmarshal(data, &proj); err != nil {
		return rpc.ProjectInfo{}, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rel, _ := filepath.Rel(repoDir, path)

	var targetFramework, packageIDRaw, outputType, isPackable, isTestProject string
	for _, pg := range proj.PropertyGroups {
		if pg.TargetFramework != "" {
			targetFramework = pg.TargetFramework
		}
		if pg.PackageID != "" {
			packageIDRaw = pg.PackageID
		}
		if pg.OutputType != "" {
			outputType = pg.OutputType
		}
		if pg.IsPackable != "" {
			isPackable = pg.IsPackable
		}
		if pg.IsTestProject != "" {
			isTestProject = pg.IsTestProject
		}
	}

	var refs []rpc.ProjectReferenceRef
	for _, ig := range proj.ItemGroups {
		for _, pr := range ig.PackageReferences {
			if pr.Include == "" {
				continue
			}
			refs = append(refs, rpc.ProjectReferenceRef{PackageID: pr.Include, Version: pr.Version})
		}
	}

	var packageID *string
	if packageIDRaw != "" {
		packageID = &packageIDRaw
	} else if strings.EqualFold(isPackable, "true") {
		packageID = &name
	}

	return rpc.ProjectInfo{
		Name:            name,
		Kind:            classify(name, outputType, isTestProject),
		RelativePath:    filepath.ToSlash(rel),
		TargetFramework: targetFramework,
		PackageID:       packageID,
		References:      refs,
	}, nil
}

func classify(name, outputType, isTestProject string) models.ProjectKind {
	lowerName := strings.ToLower(name)
	switch {
	case strings.EqualFold(isTestProject, "true"), strings.HasSuffix(lowerName, ".tests"), strings.HasSuffix(lowerName, ".test"):
		return models.ProjectKindTest
	case strings.EqualFold(outputType, "Exe"):
		if strings.Contains(lowerName, "service") || strings.Contains(lowerName, "api") || strings.Contains(lowerName, "web") {
			return models.ProjectKindService
		}
		return models.ProjectKindExecutable
	case strings.Contains(lowerName, "service") || strings.Contains(lowerName, "api"):
		return models.ProjectKindService
	default:
		return models.ProjectKindLibrary
	}
}
