package workspace

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Stack describes a detected project stack with default commands used
// when a project does not configure its own.
type Stack struct {
	Name          string
	SetupCommand  string
	DeployCommand string
	TestCommand   string
	HealthPath    string
}

// Known stacks in detection priority order. Deploy commands read PORT
// from the environment, which the deployment step sets per run.
var knownStacks = []struct {
	name     string
	patterns []string
	stack    Stack
}{
	{
		name:     "node",
		patterns: []string{"package.json"},
		stack: Stack{
			Name:          "node",
			SetupCommand:  "npm install",
			DeployCommand: "npm start",
			TestCommand:   "npm test",
			HealthPath:    "/",
		},
	},
	{
		name:     "go",
		patterns: []string{"go.mod"},
		stack: Stack{
			Name:          "go",
			SetupCommand:  "go mod download",
			DeployCommand: "go run .",
			TestCommand:   "go test ./...",
			HealthPath:    "/",
		},
	},
	{
		name:     "python",
		patterns: []string{"requirements.txt", "pyproject.toml"},
		stack: Stack{
			Name:          "python",
			SetupCommand:  "pip install -r requirements.txt",
			DeployCommand: "python main.py",
			TestCommand:   "pytest",
			HealthPath:    "/",
		},
	},
	{
		name:     "static",
		patterns: []string{"index.html", "public/index.html", "dist/index.html"},
		stack: Stack{
			Name:          "static",
			SetupCommand:  "",
			DeployCommand: "python3 -m http.server ${PORT}",
			HealthPath:    "/",
		},
	},
}

// DetectStack inspects a cloned tree and returns the first matching
// stack. Returns (nil, nil) when nothing matches; callers fall back to
// project-configured commands.
func DetectStack(dir string) (*Stack, error) {
	for _, candidate := range knownStacks {
		for _, pattern := range candidate.patterns {
			matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, err
			}
			if len(matches) > 0 {
				s := candidate.stack
				return &s, nil
			}
		}
	}
	return nil, nil
}
