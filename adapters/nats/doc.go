// Package nats runs the cluster transport and membership over NATS.
//
// [Transport] publishes frames on <prefix>.member.<token>, where token is
// a BLAKE2b hash of the member name. [KVMembership] keeps one heartbeat
// key per member in a JetStream key-value bucket and reports the live
// members to a [cluster.MembershipSink].
package nats
