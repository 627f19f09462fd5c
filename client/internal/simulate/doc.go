// Package simulate generates a synthetic clickstream: random shoppers viewing
// random products, published at a steady rate through the publisher. It is
// used to exercise the gateway and downstream offer pipeline without a
// storefront.
package simulate
