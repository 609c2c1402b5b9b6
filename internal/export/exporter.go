package export

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"lumina/internal/storage"
)

// Example is a single prompt/completion pair distilled from a project's
// refinement conversation. Used to review and tune director phrasing.
type Example struct {
	ProjectID   string `json:"project_id"`
	RoomContext string `json:"room_context"`
	RoomType    string `json:"room_type,omitempty"`
	InputText   string `json:"input_text"`
	OutputText  string `json:"output_text"`
	ResultCount int    `json:"result_count"`
}

// Options control which projects are exported.
type Options struct {
	MinResults int
	MinTurns   int
}

// BuildExamples converts project transcripts to a JSONL-friendly dataset.
// Status notices never become examples; only real user/designer exchanges do.
func BuildExamples(projects []storage.Project, opts Options) []Example {
	if opts.MinResults <= 0 {
		opts.MinResults = 1
	}
	if opts.MinTurns <= 0 {
		opts.MinTurns = 2
	}

	var examples []Example
	for _, project := range projects {
		if len(project.Results) < opts.MinResults {
			continue
		}
		turns := conversationalTurns(project.Transcript)
		if len(turns) < opts.MinTurns {
			continue
		}
		for i := 0; i+1 < len(turns); i++ {
			if turns[i].Role != "user" || turns[i+1].Role == "user" {
				continue
			}
			examples = append(examples, Example{
				ProjectID:   project.ID,
				RoomContext: string(project.RoomContext),
				RoomType:    project.Analysis.RoomType,
				InputText:   turns[i].Text,
				OutputText:  turns[i+1].Text,
				ResultCount: len(project.Results),
			})
		}
	}
	return examples
}

func conversationalTurns(transcript []storage.TranscriptEntry) []storage.TranscriptEntry {
	out := make([]storage.TranscriptEntry, 0, len(transcript))
	for _, entry := range transcript {
		if entry.Notice || strings.TrimSpace(entry.Text) == "" {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// WriteJSONL writes one example per line.
func WriteJSONL(path string, examples []Example) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, example := range examples {
		if err := encoder.Encode(example); err != nil {
			return fmt.Errorf("export: encode example for %s: %w", example.ProjectID, err)
		}
	}
	return nil
}
