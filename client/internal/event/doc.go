// Package event defines the payloads exchanged with the gateway: click events
// going out, offers coming in, and the public-address boundary click events
// depend on.
package event
