// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package dialogue

import "fmt"

// Canned reply texts. The data-collection prompts are always these
// exact strings; the greeting and the branch explanation are normally
// phrased by the generation collaborator and fall back to these when
// it is unavailable.
const (
	cannedGreeting = "Hello! I can help you diagnose your smart thermostat. " +
		"What seems to be the problem?"

	cannedAcknowledge = "Thanks, let's narrow that down. " +
		"What temperature does the thermostat currently read, in degrees Celsius?"

	promptDesiredTemp = "And what temperature would you like the room to be, in degrees Celsius?"

	promptTimeOfDay = "When did you notice the problem? " +
		"(morning, afternoon, evening, or night — \"now\" works too)"

	promptDuration = "How long has this been going on? " +
		"(for example: less than an hour, more than an hour)"

	cannedTicketExplanation = "Based on what you've told me, this looks like " +
		"something our support team should check."

	cannedWaitExplanation = "The temperature gap is small and the problem is recent. " +
		"Thermostats can take a while to settle after a setpoint change."

	replyWaitAdvice = "Please wait about an hour and see if the temperature catches up. " +
		"If it doesn't, start a new conversation and we'll file a ticket."

	replyGoodbye = "Thanks for contacting support. Goodbye!"

	replyPersistFailed = "I couldn't save your support ticket just now. " +
		"Please send any message to try again."

	replyForcedEnd = "I'm sorry, we don't seem to be getting anywhere. " +
		"Ending this conversation — please contact support directly."
)

// replyTicketCreated announces the persisted ticket.
func replyTicketCreated(ticketID string) string {
	return fmt.Sprintf("I've created support ticket %s for you. "+
		"Our team will be in touch. Goodbye!", ticketID)
}

// rePrompt maps a validation failure to the corrective prompt for the
// state the machine stays in.
func rePrompt(state State, kind ValidationKind) string {
	if kind == KindRejected {
		return "Let's keep it civil. " + promptForState(state)
	}
	switch state {
	case StateWelcome:
		return "I didn't catch that. Could you describe the problem with your thermostat?"
	case StateCurrentTemp, StateDesiredTemp:
		if kind == KindOutOfRange {
			return fmt.Sprintf("That's outside the range I can work with. "+
				"Please give a temperature between %g and %g degrees Celsius.",
				MinTemperature, MaxTemperature)
		}
		return "I couldn't find a temperature in that. " +
			"Please answer with a number, like \"21.5\"."
	case StateTimeOfDay:
		return "I didn't recognize that time of day. " +
			"Please answer with morning, afternoon, evening, or night."
	default:
		return promptForState(state)
	}
}

// promptForState is the canned question the machine asks on entering
// (or re-entering) a state.
func promptForState(state State) string {
	switch state {
	case StateWelcome:
		return cannedGreeting
	case StateCurrentTemp:
		return cannedAcknowledge
	case StateDesiredTemp:
		return promptDesiredTemp
	case StateTimeOfDay:
		return promptTimeOfDay
	case StateDurationCheck:
		return promptDuration
	case StateWaitHour:
		return replyWaitAdvice
	default:
		return replyGoodbye
	}
}
