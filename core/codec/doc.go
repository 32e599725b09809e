// Package codec provides the payload serializers used to bridge raw topic
// mailboxes and typed ones.
package codec
