package common

// AccessTokenHeaderName is the HTTP header carrying the bearer token on
// protected requests.
const AccessTokenHeaderName = "x-auth-token"

// MinPasswordLength is the shortest local password accepted at signup.
const MinPasswordLength = 6
