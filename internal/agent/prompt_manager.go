package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PromptManager loads operator-editable prompt fragments from a directory.
// Markdown files at the top level form the system prompt; files under
// steps/ override the built-in instructions of individual steps.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) GetSystemPrompt() (string, error) {
	if pm == nil || pm.Directory == "" {
		return "", nil
	}
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %v", err)
	}

	order := map[string]int{
		"identity.md":    1,
		"brand_voice.md": 2,
		"guidelines.md":  3,
		"output.md":      4,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		path := filepath.Join(pm.Directory, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}

	return strings.Join(contents, "\n\n---\n\n"), nil
}

// StepInstructions returns the override for a step namespace, or def when
// none exists.
func (pm *PromptManager) StepInstructions(key, def string) string {
	if pm == nil || pm.Directory == "" {
		return def
	}
	data, err := os.ReadFile(filepath.Join(pm.Directory, "steps", key+".md"))
	if err != nil {
		return def
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return def
}
