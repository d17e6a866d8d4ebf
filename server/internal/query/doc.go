// Package query decodes URL query strings the way diagnostic clients encode them.
//
// Unlike net/url.ParseQuery, decoding never fails: malformed escapes are
// dropped, "%XX" yields the raw byte even when the result is not valid UTF-8,
// ";" is an ordinary character, and the last occurrence of a key wins.
package query
