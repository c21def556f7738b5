// Package password hashes and verifies account passwords for the local
// identity provider using Argon2id in PHC string form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes produced with weaker parameters report NeedsRehash so callers can
// upgrade them after the next successful sign-in.
package password
