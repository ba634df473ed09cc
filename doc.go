/*
Package sherpa is a flow navigation engine for building multi-step,
conditionally-branching user journeys: onboarding wizards, setup
assistants, guided configuration flows.

It separates the flow definition (an ordered list of steps with
conditions and explicit branch references) from the session state (a
mutable context plus the visited-step history) and from the collaborators
that persist and render it. The engine owns navigation semantics only:
given the same definition, context and history, every navigation resolves
deterministically.

# Key Features

  - Deterministic navigation: explicit next/prev/skip references, with
    array order and history as fallback sources.
  - Conditional steps: ineligible steps are skipped transparently in
    both directions, with a depth bound guarding against cycles.
  - Checklist gating: checklist steps block forward navigation until
    their completion criteria are met.
  - Session persistence: snapshots of {context, current step} flow
    through pluggable stores (memory, file, Redis) with optional
    encryption and PII masking middleware.
  - Event bus: state changes, step lifecycle, completion, errors and
    checklist activity are published to subscribers; pre-navigation
    listeners may cancel or redirect a transition.

# Usage

Define a flow in code or load one from a YAML/JSON file, then drive the
session:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/sherpa"
		"github.com/aretw0/sherpa/pkg/flow"
	)

	func main() {
		eng, err := sherpa.New([]flow.Step{
			{ID: "welcome", Payload: map[string]any{"title": "Welcome"}},
			{ID: "beta-features", Condition: func(fc *flow.Context) bool {
				v, _ := fc.Value("beta")
				return v == true
			}},
			{ID: "done"},
		})
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		step, err := eng.Start(ctx)
		if err != nil {
			log.Fatal(err)
		}

		for step != nil {
			log.Println("at:", step.ID)
			step, err = eng.Next(ctx, nil)
			if err != nil {
				log.Fatal(err)
			}
		}
		log.Println("flow completed")
	}

For long-running sessions, wire a state store with WithStore and call
Resume instead of Start; the session picks up exactly where it was
persisted.
*/
package sherpa
