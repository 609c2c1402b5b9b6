package director

import (
	"fmt"
	"sort"
	"strings"

	"lumina/internal/prompts"
)

// ComposeEditPrompt renders a validated instruction into the text payload
// handed to the image model. The hard constraints block is appended to every
// payload without exception, including full-scene restyles.
func ComposeEditPrompt(instruction EditInstruction) string {
	var b strings.Builder

	if len(instruction.TargetElements) > 0 {
		fmt.Fprintf(&b, "CHANGE: %s.\n", strings.Join(instruction.TargetElements, ", "))
	}

	elements := make([]string, 0, len(instruction.RestorationReferences))
	for element := range instruction.RestorationReferences {
		elements = append(elements, element)
	}
	sort.Strings(elements)
	for _, element := range elements {
		fmt.Fprintf(&b, "Render the %s exactly as %s matching the original image.\n",
			element, instruction.RestorationReferences[element])
	}

	if len(instruction.PreserveElements) > 0 {
		fmt.Fprintf(&b, "KEEP EXISTING: %s.\n", strings.Join(instruction.PreserveElements, ", "))
	}

	b.WriteString("\n")
	b.WriteString(prompts.EditConstraints)
	return b.String()
}

// ComposePresetPrompt wraps a style preset's redesign prompt with the same
// hard constraints an interactive edit carries.
func ComposePresetPrompt(prompt string) string {
	return strings.TrimSpace(prompt) + "\n\n" + prompts.EditConstraints
}
