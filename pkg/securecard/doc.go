/*
Package securecard reads signed, encrypted records from contact smart cards
over ISO 7816 APDUs.

One protocol serves every deployment; a deployment differs only in its
Config (AID, command headers, retrieval mode and padding convention). The
known deployments are available through Profile.

# Session

A Session moves strictly forward:

	Unauthenticated -> Authenticated -> KeyFetched -> PayloadFetched -> SignatureVerified -> Decrypted

Any failure moves it to Failed and every later call returns that failure.
Nothing is retried.

# Operation: Mutual authentication

	SELECT        00 A4 04 00 <Lc> <AID>
	GET_NONCE     80 CA 00 00 05               -> cardNonce | 9000
	MUTUAL_AUTH   80 11 00 00 <Lc> Enc(cardNonce || readerNonce, zero padded)
	RESPOND_AUTH  80 12 00 00 00               -> Enc(readerNonce || cardID) | 9000

The first 16 decrypted bytes of the RESPOND_AUTH response must equal the
reader nonce. Enc is AES-128 in ECB mode without padding.

# Operation: Payload retrieval

Chunked (electricity, banking, transport):

	GET_DATA      00 <INS> <offHi> <offLo> F0   -> up to 240 bytes | 9000

The offset advances by the bytes received. An empty or short response ends
the read. Single-shot (voting):

	GET_DATA      80 13 00 00 00               -> payload | 9000

# Operation: Signature

	GET_PUBLIC_KEY  00 52 00 00 41   -> 04 || X || Y | 9000
	GET_SIGNATURE   00 51 00 00 48   -> DER ECDSA signature | 9000

The signature covers SHA-256 of the encrypted payload exactly as retrieved.
It is checked before anything is decrypted.

# Fail states

	SW=6982  Security not satisfied (card rejected the challenge)
	SW=6985  Conditions not satisfied (command sent before authentication)
	SW=6A82  Applet not found
	SW=6B00  Offset outside the stored payload

	nonce mismatch           Card does not hold the shared key. Reject the card.
	signature invalid        Payload altered or signed by another key. Reject the card.
	decrypt or parse failed  Key mismatch or unknown padding convention.
*/
package securecard
