package director

import (
	"context"
	"fmt"
	"strings"

	"lumina/internal/storage"
)

// generalComposition is the baseline element set every interior shares; it
// backs preserve-list synthesis when the collaborator omits one.
var generalComposition = []string{"walls", "floor", "ceiling", "windows", "furniture"}

// Request carries one director round: the user's utterance plus the
// accumulated session context. The image and analysis always describe the
// ORIGINAL room state, never an intermediate edit.
type Request struct {
	UserMessage      string
	History          string
	Analysis         *storage.RoomAnalysis
	RoomContext      storage.RoomContext
	CurrentImage     []byte
	CurrentImageMIME string
}

// Reply is what the backing collaborator returns: conversational text plus an
// optional structured edit draft. A nil draft is the conversational branch.
type Reply struct {
	Text  string
	Draft *Draft
}

// Draft is the collaborator's unvalidated proposal. The director never
// dispatches a draft as-is; every field passes mechanical validation first.
type Draft struct {
	TargetElements   []string
	PreserveElements []string
	RestoreElements  []string
}

// Collaborator is the chat model backing the director's intent
// classification and draft synthesis.
type Collaborator interface {
	Converse(ctx context.Context, req Request) (Reply, error)
}

// EditInstruction is the validated, isolation-scoped outcome of a director
// round. It is produced fresh per invocation and never stored.
type EditInstruction struct {
	TargetElements        []string
	PreserveElements      []string
	RestorationReferences map[string]string
}

// Decision is the director's verdict for one round. A nil Instruction means
// no image edit is to be performed.
type Decision struct {
	ConfirmationText string
	Instruction      *EditInstruction
	EditPrompt       string
}

// IsConversationalOnly reports whether the round ends without a visual change.
func (d Decision) IsConversationalOnly() bool {
	return d.Instruction == nil
}

const (
	apologyText       = "I'm sorry, I couldn't process that request right now."
	ambiguousEditText = "I want to make sure I change only what you intend. Could you tell me which part of the room you'd like to update?"
)

// Director turns a user utterance plus session context into either a pure
// conversational reply or a precisely scoped edit instruction.
type Director struct {
	collaborator Collaborator
}

// New constructs a director backed by the given collaborator.
func New(collaborator Collaborator) *Director {
	return &Director{collaborator: collaborator}
}

// Respond runs one director round. The returned Decision is always usable;
// a non-nil error marks a collaborator failure (already degraded to the
// conversational branch) so callers can log it or surface a retry hint.
// The routing itself is deterministic: the same (history, message, analysis)
// triple always classifies the same way.
func (d *Director) Respond(ctx context.Context, req Request) (Decision, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return Decision{}, fmt.Errorf("director: empty user message")
	}

	reply, err := d.collaborator.Converse(ctx, req)
	if err != nil {
		// Never retry with a degraded instruction: an under-specified edit
		// can corrupt preserved regions and there is no undo.
		return Decision{ConfirmationText: apologyText}, fmt.Errorf("director: converse: %w", err)
	}

	text := strings.TrimSpace(reply.Text)
	if text == "" {
		text = apologyText
	}

	if reply.Draft == nil {
		return Decision{ConfirmationText: text}, nil
	}

	decision, ok := d.validate(req, reply.Draft)
	if !ok {
		// Soft failure: degrade to conversation instead of dispatching an
		// ambiguous edit.
		return decision, nil
	}

	decision.ConfirmationText = text
	decision.EditPrompt = ComposeEditPrompt(*decision.Instruction)
	return decision, nil
}

// validate applies the isolation, restoration and context-appropriateness
// rules to a draft. When the draft cannot be made safe it returns a
// conversational fallback and ok=false.
func (d *Director) validate(req Request, draft *Draft) (Decision, bool) {
	targets := normalizeSet(draft.TargetElements)
	restores := normalizeSet(draft.RestoreElements)

	// Context rule: drop targets contradicting the declared room context
	// unless the user explicitly asked for them.
	targets = suppressContextConflicts(targets, req.RoomContext, req.UserMessage)

	// Restoration rule: each restore must resolve to a literal original
	// material; guessing is never allowed.
	references := map[string]string{}
	for _, element := range restores {
		material, found := lookupOriginalMaterial(element, req.Analysis)
		if !found {
			return Decision{ConfirmationText: fmt.Sprintf(
				"I don't have a record of the original %s for this room, so I can't restore it faithfully. Could you describe what it should look like instead?",
				element)}, false
		}
		references[element] = material
	}

	// A restored element is fully specified by its recorded material, so it
	// leaves the target set; it must end up preserved, never changed.
	targets = subtract(targets, restores)

	if len(targets) == 0 && len(references) == 0 {
		return Decision{ConfirmationText: ambiguousEditText}, false
	}

	preserve := normalizeSet(draft.PreserveElements)
	preserve = subtract(preserve, targets)

	// Isolation rule: a partial-scene edit must carry an explicit non-empty
	// preserve list. A missing list is re-synthesized deterministically from
	// the known architectural features and the general composition.
	if !isFullScene(targets) {
		if len(preserve) == 0 {
			preserve = synthesizePreserve(req.Analysis, targets)
		}
		for element := range references {
			if !containsFold(preserve, element) {
				preserve = append(preserve, element)
			}
		}
		if len(preserve) == 0 {
			return Decision{ConfirmationText: ambiguousEditText}, false
		}
	}

	return Decision{Instruction: &EditInstruction{
		TargetElements:        targets,
		PreserveElements:      preserve,
		RestorationReferences: references,
	}}, true
}

// lookupOriginalMaterial finds the authentic material recorded for an element
// at analysis time. Matching is deterministic: the first feature, in original
// order, whose text mentions the element wins.
func lookupOriginalMaterial(element string, analysis *storage.RoomAnalysis) (string, bool) {
	if analysis == nil {
		return "", false
	}
	needle := strings.ToLower(strings.TrimSpace(element))
	needle = strings.TrimSuffix(needle, "s")
	if needle == "" {
		return "", false
	}
	for _, feature := range analysis.ArchitecturalFeatures {
		if strings.Contains(strings.ToLower(feature), needle) {
			return feature, true
		}
	}
	return "", false
}

// suppressContextConflicts removes targets that contradict the declared room
// context, unless the user's own words name them.
func suppressContextConflicts(targets []string, roomContext storage.RoomContext, userMessage string) []string {
	banned := residentialOnlyTerms
	if roomContext == storage.ContextResidential {
		banned = commercialOnlyTerms
	}

	message := strings.ToLower(userMessage)
	out := make([]string, 0, len(targets))
	for _, target := range targets {
		lowered := strings.ToLower(target)
		conflicting := ""
		for _, term := range banned {
			if strings.Contains(lowered, term) {
				conflicting = term
				break
			}
		}
		if conflicting != "" && !strings.Contains(message, conflicting) {
			continue
		}
		out = append(out, target)
	}
	return out
}

var (
	residentialOnlyTerms = []string{"bed", "crib", "nursery", "bunk"}
	commercialOnlyTerms  = []string{"cubicle", "conference table", "reception desk", "whiteboard"}
)

// FilterSuggestions drops analysis suggestions that contradict the declared
// room context. The analysis itself is left untouched.
func FilterSuggestions(analysis storage.RoomAnalysis, roomContext storage.RoomContext) storage.RoomAnalysis {
	banned := residentialOnlyTerms
	if roomContext == storage.ContextResidential {
		banned = commercialOnlyTerms
	}

	matchesBanned := func(text string) bool {
		lowered := strings.ToLower(text)
		for _, term := range banned {
			if strings.Contains(lowered, term) {
				return true
			}
		}
		return false
	}

	decor := make([]string, 0, len(analysis.DecorSuggestions))
	for _, suggestion := range analysis.DecorSuggestions {
		if !matchesBanned(suggestion) {
			decor = append(decor, suggestion)
		}
	}
	analysis.DecorSuggestions = decor

	suggested := make([]storage.SuggestedPrompt, 0, len(analysis.SuggestedPrompts))
	for _, prompt := range analysis.SuggestedPrompts {
		if !matchesBanned(prompt.Title) && !matchesBanned(prompt.Prompt) {
			suggested = append(suggested, prompt)
		}
	}
	analysis.SuggestedPrompts = suggested

	return analysis
}

// synthesizePreserve builds the preserve list from the recorded features plus
// the general composition, minus whatever is targeted.
func synthesizePreserve(analysis *storage.RoomAnalysis, targets []string) []string {
	var known []string
	if analysis != nil {
		known = append(known, analysis.ArchitecturalFeatures...)
	}
	known = append(known, generalComposition...)

	out := make([]string, 0, len(known))
	for _, element := range known {
		if overlapsAny(element, targets) {
			continue
		}
		if !containsFold(out, element) {
			out = append(out, element)
		}
	}
	return out
}

// isFullScene reports whether the targets describe a whole-room restyle, in
// which case no preserve list can be required.
func isFullScene(targets []string) bool {
	for _, target := range targets {
		lowered := strings.ToLower(target)
		if strings.Contains(lowered, "entire room") ||
			strings.Contains(lowered, "whole room") ||
			strings.Contains(lowered, "everything") {
			return true
		}
	}
	return false
}

func normalizeSet(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if !containsFold(out, trimmed) {
			out = append(out, trimmed)
		}
	}
	return out
}

func subtract(items, remove []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if overlapsAny(item, remove) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// overlapsAny reports whether element refers to any of the names, in either
// direction ("floor" overlaps "Herringbone oak flooring").
func overlapsAny(element string, names []string) bool {
	lowered := strings.ToLower(element)
	for _, name := range names {
		stem := strings.TrimSuffix(strings.ToLower(name), "s")
		if stem == "" {
			continue
		}
		if strings.Contains(lowered, stem) || strings.Contains(stem, strings.TrimSuffix(lowered, "s")) {
			return true
		}
	}
	return false
}

func containsFold(items []string, needle string) bool {
	for _, item := range items {
		if strings.EqualFold(item, needle) {
			return true
		}
	}
	return false
}
