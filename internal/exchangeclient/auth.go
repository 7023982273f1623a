package exchangeclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// sign computes Bitvavo's request signature: hex(HMAC_SHA256(secret,
// timestamp + method + path + body)), grounded on order_submit_bitvavo.py's
// _signature helper. timestamp is milliseconds since epoch as a decimal
// string, method is the upper-case HTTP verb, path includes the leading
// "/v2" prefix and any query string, body is the raw JSON request body
// (empty string for GET/DELETE).
func sign(secret string, timestampMs int64, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
