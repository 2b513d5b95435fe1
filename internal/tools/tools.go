// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tools holds the structured content generators the general coaching
// handler may invoke. These carry no safety branching: each takes structured
// parameters, asks the model for JSON-shaped output, and substitutes a
// minimal safe default when the output cannot be parsed.
package tools

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// GenerateFunc issues a bounded model call; wired to the Model Router.
type GenerateFunc func(ctx context.Context, system, user string, maxTokens int) (string, error)

// MealPlan is the JSON-shaped output of the meal planner.
type MealPlan struct {
	Days []MealPlanDay `json:"days"`
	Note string        `json:"note"`
}

// MealPlanDay is one day of a meal plan.
type MealPlanDay struct {
	Label  string   `json:"label"`
	Meals  []string `json:"meals"`
	Snacks []string `json:"snacks"`
}

// MacroTargets is the JSON-shaped output of the macro calculator.
type MacroTargets struct {
	Calories int    `json:"calories"`
	ProteinG int    `json:"protein_g"`
	CarbsG   int    `json:"carbs_g"`
	FatG     int    `json:"fat_g"`
	Note     string `json:"note"`
}

const mealPlanSystemPrompt = `You are a meal planning assistant. Produce a practical meal plan as a JSON object:
{"days": [{"label": "Day 1", "meals": ["..."], "snacks": ["..."]}], "note": "..."}
Respond with only the JSON object.`

const macroSystemPrompt = `You are a nutrition macro calculator. Given the user's stats and goal, estimate daily targets as a JSON object:
{"calories": 0, "protein_g": 0, "carbs_g": 0, "fat_g": 0, "note": "..."}
Respond with only the JSON object.`

// Toolset bundles the structured generators behind one Router-backed call.
type Toolset struct {
	generate GenerateFunc
}

// NewToolset creates a Toolset over a generation function.
func NewToolset(generate GenerateFunc) *Toolset {
	return &Toolset{generate: generate}
}

// MealPlan generates a meal plan for the given preferences. Malformed model
// output yields a minimal default plan, never a parse error.
func (t *Toolset) MealPlan(ctx context.Context, days int, preferences string) (*MealPlan, error) {
	if days <= 0 {
		days = 3
	}
	user := fmt.Sprintf("Create a %d-day meal plan. Preferences: %s", days, preferences)
	raw, err := t.generate(ctx, mealPlanSystemPrompt, user, 1200)
	if err != nil {
		return nil, err
	}

	doc := extractJSON(raw)
	if !gjson.Get(doc, "days").IsArray() {
		log.WithField("raw_len", len(raw)).Warn("meal planner returned malformed output, substituting default")
		return defaultMealPlan(days), nil
	}
	plan := &MealPlan{Note: gjson.Get(doc, "note").String()}
	for _, day := range gjson.Get(doc, "days").Array() {
		d := MealPlanDay{Label: day.Get("label").String()}
		for _, meal := range day.Get("meals").Array() {
			d.Meals = append(d.Meals, meal.String())
		}
		for _, snack := range day.Get("snacks").Array() {
			d.Snacks = append(d.Snacks, snack.String())
		}
		plan.Days = append(plan.Days, d)
	}
	return plan, nil
}

// Macros estimates daily macro targets. Malformed model output yields a
// conservative default, never a parse error.
func (t *Toolset) Macros(ctx context.Context, stats, goal string) (*MacroTargets, error) {
	user := fmt.Sprintf("Stats: %s. Goal: %s.", stats, goal)
	raw, err := t.generate(ctx, macroSystemPrompt, user, 400)
	if err != nil {
		return nil, err
	}

	doc := extractJSON(raw)
	calories := gjson.Get(doc, "calories").Int()
	if calories <= 0 {
		log.WithField("raw_len", len(raw)).Warn("macro calculator returned malformed output, substituting default")
		return defaultMacros(), nil
	}
	return &MacroTargets{
		Calories: int(calories),
		ProteinG: int(gjson.Get(doc, "protein_g").Int()),
		CarbsG:   int(gjson.Get(doc, "carbs_g").Int()),
		FatG:     int(gjson.Get(doc, "fat_g").Int()),
		Note:     gjson.Get(doc, "note").String(),
	}, nil
}

func defaultMealPlan(days int) *MealPlan {
	plan := &MealPlan{Note: "A simple starting point; adjust portions to your appetite and preferences."}
	for i := 1; i <= days; i++ {
		plan.Days = append(plan.Days, MealPlanDay{
			Label:  fmt.Sprintf("Day %d", i),
			Meals:  []string{"Balanced breakfast with protein and whole grains", "Lunch with lean protein and vegetables", "Dinner with vegetables, protein, and a complex carb"},
			Snacks: []string{"Fruit or a handful of nuts"},
		})
	}
	return plan
}

func defaultMacros() *MacroTargets {
	return &MacroTargets{
		Calories: 2000,
		ProteinG: 100,
		CarbsG:   225,
		FatG:     65,
		Note:     "General baseline targets; individual needs vary widely.",
	}
}

func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
