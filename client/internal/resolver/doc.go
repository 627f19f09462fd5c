// Package resolver resolves the client's runtime configuration: the click and
// offers topic names and the workspace address gateway endpoints are built on.
//
// Topic names come from the config (file, env or build flags). A name left
// empty is fetched once from the relative path click_topic or offers_topic on
// TopicsBaseURL; the plain-text body minus one trailing line feed settles the
// topic's Cell. A failed lookup marks the Cell Failed with ErrTopicUnresolved
// and is never retried.
//
// Endpoints:
//
//	publish:   {scheme}://{publisher_service}-{base}/topic/{topic}/stream/{stream}
//	subscribe: {scheme}://{subscriber_service}-{base}/topic/{topic}
//
// base is workspace_url when set, otherwise the part of the page origin
// following the frontend prefix. Unresolvable parts are reported as
// ErrBaseUnresolved / ErrTopicUnresolved rather than formatted into the URL.
package resolver
