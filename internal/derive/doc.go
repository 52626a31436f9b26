// Package derive turns repository method names into query predicates.
//
// A method name reads as a sentence over the root entity's property graph:
//
//	findByUsernameAndAgeGreaterThan(username string, age int)
//	  → username = :0 AND age > :1
//
//	findTop3ByTeamNameOrderByAgeDesc(name string)
//	  → team.name = :0 ORDER BY age DESC LIMIT 3
//
// Grammar:
//
//	name      = verb [subject] ["By" criteria] ["OrderBy" order]
//	verb      = find | get | query | read | search | stream | exists | count | delete | remove
//	subject   = words, optionally containing Distinct and First[N] / Top[N]
//	criteria  = and-part { "Or" and-part }
//	and-part  = leaf { "And" leaf }
//	leaf      = path [operator keyword]
//	order     = path [Asc|Desc] { path [Asc|Desc] }
//
// Keywords count only at word boundaries (followed by an upper-case letter).
// AND binds tighter than OR.
//
// Parameters are consumed left to right by leaves; paging and sort
// parameters are skipped. Every error is detected at bind time, so a
// repository that constructs successfully never fails to derive a query at
// invocation time.
package derive
