// Package events provides small generic pub/sub primitives used to fan out
// session status, supplement alerts and sensor samples between components.
package events
