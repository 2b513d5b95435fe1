package triage

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ClassificationDeterminism validates that the rule pass is a
// pure function: the same text always yields the same category and reason.
func TestProperty_ClassificationDeterminism(t *testing.T) {
	properties := gopter.NewProperties(nil)
	classifier := NewClassifier()

	properties.Property("classifying the same text twice yields the same result", prop.ForAll(
		func(text string) bool {
			first := classifier.Classify(context.Background(), text)
			second := classifier.Classify(context.Background(), text)
			return first.Category == second.Category && first.Reason == second.Reason
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestProperty_ClassificationTotality validates that every input lands in
// exactly one of the seven known categories.
func TestProperty_ClassificationTotality(t *testing.T) {
	properties := gopter.NewProperties(nil)
	classifier := NewClassifier()

	properties.Property("every input maps to a valid category", prop.ForAll(
		func(text string) bool {
			return classifier.Classify(context.Background(), text).Category.Valid()
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestProperty_CrisisPhraseAlwaysWins validates that appending arbitrary text
// around an unambiguous crisis phrase never changes the category.
func TestProperty_CrisisPhraseAlwaysWins(t *testing.T) {
	properties := gopter.NewProperties(nil)
	classifier := NewClassifier()

	properties.Property("crisis phrase dominates surrounding text", prop.ForAll(
		func(prefix, suffix string) bool {
			text := prefix + " I want to kill myself " + suffix
			return classifier.Classify(context.Background(), text).Category == CategoryMentalHealthCrisis
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
