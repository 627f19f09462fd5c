// Package stats scrapes the gateway's /metrics endpoint and folds the
// shopstream_* families into per-topic traffic figures.
//
// Scraper.Scrape(ctx) performs one GET, parses the Prometheus text
// exposition and returns a Snapshot. Families the gateway has not exported
// yet read as zero.
package stats
