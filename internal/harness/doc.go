// Package harness runs scripted chat scenarios against a real router.
//
// A scenario names a configuration, the members and schematics it uses,
// a list of chat events, and assertions over what the bot did. Every
// event goes through router.Handle synchronously against in-memory fakes:
// platform.Fake for the chat platform, vcs.Recorder for version control
// and audit.Recorder for the audit channel, with a fresh SQLite store per
// run. Calls the router makes on those fakes are recorded in order as the
// trace.
//
// # Scenario Format
//
//	name: logic_add_then_delete
//	description: "A schematic posted in a logic channel is stored, then removed"
//	config:
//	  repos:
//	    - name: designs
//	      guild: 7
//	      chief: 10
//	      deny_emoji: "deny:1"
//	      channels:
//	        - {id: 100, dir: logic, labels: [Logic]}
//	members:
//	  - {id: 42, name: ana}
//	artifacts:
//	  - {key: sorter, name: Sorter, blocks: [sorter, conveyor]}
//	steps:
//	  - {type: create, channel: 100, message: 500, author: 42, artifact: sorter}
//	  - {type: delete, channel: 100, message: 500}
//	assertions:
//	  - type: trace_order
//	    actions: [chat.reply, vcs.commit, chat.react]
//	  - type: final_state
//	    table: actions
//	    where: {action: remove}
//	    expect: {artifact_id: "1f4", actor: plent}
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: a store table row matches the expected columns
//   - stored, not_stored: a schematic file exists (or not) in a repository
//
// Runs are deterministic: correlation ids are sequential, the wall clock
// is fixed, and posted message ids start at 9001, so traces can be
// compared against golden files with RunWithGolden.
package harness
