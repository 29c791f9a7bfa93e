package driven

// PromptStore hands the answer composer its prompt templates. A user copy
// on disk overrides the built-in text; Load falls back to the built-in
// when the copy is missing or unusable.
type PromptStore interface {
	Load(name string) (string, error)
	// Reload drops cached templates so edits are picked up.
	Reload()
}

// Prompt names and the fmt verbs each template must contain.
const (
	// PromptAnswerSystem takes no arguments.
	PromptAnswerSystem = "answer_system"
	// PromptAnswerUser takes the context block, then the question.
	PromptAnswerUser = "answer_user"
	// PromptNoContext takes the question.
	PromptNoContext = "no_context"
)

// PromptStoreAware is implemented by services whose prompts can be swapped.
type PromptStoreAware interface {
	SetPromptStore(store PromptStore)
}
