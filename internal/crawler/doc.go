// Package crawler defines the review records, work items, and the small
// interfaces (fetching, persistence, archiving, publishing, time) shared by the
// discovery, review-crawling, and orchestration subsystems.
package crawler
