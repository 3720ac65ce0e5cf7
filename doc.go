// Package weatherteam is a multi-agent weather assistant. A root weather
// agent answers weather questions through a session-aware tool and delegates
// greetings and farewells to two specialist agents. An input guardrail
// rejects turns containing a blocked keyword before the model is called, and
// a tool guardrail refuses weather lookups for a blocked city.
//
// The packages layer as follows:
//
//   - core, model, tool, callback, flow, agent, runner: the agent framework
//   - session: in-memory and Redis session stores
//   - weather, greet: the domain tools and weather sources
//   - guardrail: input and tool guards and their callback adapters
//   - metrics, logging: Prometheus instruments and slog logging
//   - team: configuration and composition of the whole team
//
// The weatherteam command in cmd/weatherteam runs the tutorial conversations.
package weatherteam
