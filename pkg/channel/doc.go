// Package channel parses and signs channel identifiers used by the push server.
//
// A channel is addressed by a 16-byte private id and an optional 16-byte
// public id. On the wire a channel is written as
//
//	private[:public][.signature]
//
// where ids are 32 lowercase hex characters and the signature is the hex HMAC
// digest produced with the server signing key. Several channels are joined
// with "/".
//
// # Signatures
//
// Three signature namespaces exist and never overlap:
//
//   - private: HMAC(key, hex(private)) proves knowledge of the private id
//   - pair: HMAC(key, hex(private)+":"+hex(public)) binds a public id to the
//     private id it was minted for
//   - public: HMAC(key, "public:"+hex(public)) lets an untrusted sender name a
//     public channel as a receiver without learning the private id
//
// Without a signing key the signer runs in open mode: private signatures are
// not required, and every public or pair check fails closed.
//
// # Usage
//
//	signer, err := channel.NewSigner(os.Getenv("PUSH_SIGNING_KEY"), "sha1")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	channels, err := signer.ParseList(r.URL.Query().Get("CHANNEL_ID"), false)
//	if err != nil {
//		// reject with 4010
//	}
//
// All comparisons are done with hmac.Equal on the raw digest bytes.
package channel
