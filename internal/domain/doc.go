// Package domain defines the contest leaderboard types and the contracts between layers.
//
// Files are concept oriented (event.go, contest.go, standings.go, message.go, coordination.go).
// No implementation beyond small value helpers; adapters implement the interfaces declared here.
package domain
