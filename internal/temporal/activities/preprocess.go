package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/civiclab-mx/observatorio/internal/nlp"
)

var globalPreprocessor *nlp.Preprocessor

// SetGlobalPreprocessor installs the token preprocessor used by
// PreprocessTextActivity.
func SetGlobalPreprocessor(preprocessor *nlp.Preprocessor) {
	globalPreprocessor = preprocessor
}

func PreprocessTextActivity(ctx context.Context, text string) ([]string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Preprocessing text", "textLength", len(text))

	if globalPreprocessor == nil {
		return nil, fmt.Errorf("preprocessor not initialized")
	}

	tokens := globalPreprocessor.Tokens(text)
	logger.Info("Text preprocessed", "tokens", len(tokens))
	return tokens, nil
}
