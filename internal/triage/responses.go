// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package triage

// Fixed, pre-approved responses for the terminal categories. These paths must
// have zero dependency on external providers: a provider outage can never
// degrade the crisis and emergency answers.

const crisisResponse = `I'm really glad you told me, and I'm concerned about what you're going through. I'm not able to help with this the way a person can, and you deserve real support right now.

If you are in immediate danger, please call your local emergency number.

You can also reach the 988 Suicide & Crisis Lifeline by calling or texting 988 (US), or text HOME to 741741 to reach the Crisis Text Line. Both are free, confidential, and available 24/7.

Please consider reaching out to someone you trust and letting them know how you're feeling. You don't have to go through this alone.`

const emergencyResponse = `What you're describing could be a medical emergency. Please stop and call your local emergency number (911 in the US) or go to the nearest emergency room right away.

I'm not able to assess emergency symptoms, and waiting for online advice is not safe in this situation. If someone is with you, ask them to help you get care now.`

var fixedResponses = map[Category]string{
	CategoryMentalHealthCrisis: crisisResponse,
	CategoryMedicalEmergency:   emergencyResponse,
}

// ResponseFor returns the constant pre-approved response for a terminal
// category. The second return is false for every non-terminal category.
func ResponseFor(category Category) (string, bool) {
	text, ok := fixedResponses[category]
	return text, ok
}
