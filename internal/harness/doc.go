// Package harness runs YAML conformance scenarios against declared
// repositories.
//
// # Scenario Format
//
//	name: member_paging
//	description: "Pages members of one age by username"
//	specs: ../specs
//	seed:
//	  - entity: Team
//	    ref: teamA
//	    fields: { name: teamA }
//	  - entity: Member
//	    fields: { username: member1, age: 10, active: true }
//	    links: { team: teamA }
//	steps:
//	  - invoke: MemberRepository.findByAge
//	    args: [10]
//	    page: { index: 0, size: 3, sort: "username,desc" }
//	    expect:
//	      items: 3
//	      total: 5
//	      first: { username: member5 }
//	  - invoke: MemberRepository.bulkAgePlus
//	    args: [20]
//	    outside_unit: true
//	    expect: { error: NO_ACTIVE_TRANSACTION }
//	assertions:
//	  - type: trace_count
//	    method: MemberRepository.findByAge
//	    count: 1
//	  - type: final_state
//	    entity: Member
//	    where: { username: member1 }
//	    expect: { age: 10 }
//
// # Assertion Types
//
//   - trace_contains: an invocation with the given args and outcome exists
//   - trace_order: methods were first invoked in the given order
//   - trace_count: a method was invoked exactly N times
//   - final_state: committed rows of an entity match the expected values
//
// # Determinism
//
// Every scenario gets a fresh SQLite file. Seed ids follow insertion order,
// the provider always orders by id last, and trace sequence numbers count
// events, so identical scenarios produce byte-identical canonical traces for
// golden comparison.
package harness
