// Package offers watches the click topic for a browsing pattern and produces
// a special offer to the offers topic when a shopper completes it.
//
// Each shopper (click stream) moves through
//
//	init -> clothes_visited -> shoes_visited -> offer
//
// A clothing click enters clothes_visited only for men aged 35 to 45 and
// women aged 25 to 35. A shoes click follows, then a click on a different
// clothing product triggers the offer: offer1 for men, offer2 for women.
// Revisiting the first clothing product from shoes_visited goes back to
// clothes_visited. Every other click resets the shopper to init, as does any
// step taken once the window since the first qualifying click has passed.
// Repeated clicks on the same product are page refreshes and are ignored.
//
// Each offer is produced as {"userId": ..., "offer": ...} keyed by the
// shopper's stream ID. Shoppers idle for longer than the window are
// forgotten.
package offers
