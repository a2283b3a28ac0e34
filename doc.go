// Package accounts provides a session based user account subsystem for
// fiber apps: login and logout, email confirmed signup and password
// recovery.
//
// Credentials:
//   - PasswordHasher hashes and verifies passwords. Bcrypt is the default,
//     argon2id and pbkdf2 hashes are understood as well so existing stores
//     keep working.
//   - Authenticator resolves a username, checks the password and stores the
//     user id in the Session. CurrentUser resolves it back on every request.
//
// Confirmation links:
//   - TokenSigner issues tamper evident tokens that carry an email, an intent
//     and the time they were issued. Tokens are checked against a max age when
//     presented, there is no state on the server side.
//   - ConfirmationWorkflow mails signup and recovery links and runs the
//     command handlers that consume them.
//
// Storage:
//   - Users is the user store contract. NewUsersRepository implements it on
//     bun for sqlite and postgres, the mongostore package on mongodb.
//   - Sessions live in a signed cookie by default. ServerSessionStore keeps
//     them in any fiber.Storage, RedisStorage included.
//
// HTTP:
//   - Mount installs the session, flash and CSRF middleware and registers the
//     account routes and pages on a router server built by NewHTTPServer.
//
// Activity sinks:
//   - ActivitySink is a best effort audit emitter for login, logout, signup
//     and password reset events. Sink errors are logged, never returned.
package accounts
