// Package alerts forwards messages from selected broker topics to Teams,
// Slack or generic HTTP webhooks.
//
// Upstream detectors publish their findings to an ordinary topic; the
// Notifier consumes the topics listed under gateway.alerts.topics and posts
// each message. An optional cooldown suppresses repeats for the same
// (topic, stream) pair. Recent alerts are kept for GET /api/v1/alerts.
package alerts
