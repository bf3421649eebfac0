// Package wire defines the byte-level encodings used on a peer connection.
//
// Two codecs are involved:
//
//   - The outer envelope is a protobuf message (PeerMessage) with a oneof
//     selecting the message kind. It is encoded by hand with protowire so
//     the package carries no generated code.
//   - Payloads that are signed (edge proofs, routed messages) are carried as
//     opaque borsh blobs inside the envelope. The envelope never describes
//     their structure.
//
// # Presence
//
// Scalar fields follow proto3 rules: a zero value is not written and an
// absent field decodes to zero. sender_listen_port therefore cannot carry a
// real port 0; it is read back as absent. Nested messages are always written
// when set, even when empty.
package wire
