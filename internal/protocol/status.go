package protocol

import "strconv"

// lookup table for status reason phrases
// flat array instead of map bc codes are fixed
var statusTable = [600]string{
	100: "Continue",
	101: "Switching Protocols",

	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",

	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",

	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",

	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for code, or "Unknown".
func StatusText(code int) string {
	if code < 0 || code >= len(statusTable) || statusTable[code] == "" {
		return "Unknown"
	}
	return statusTable[code]
}

// StatusLine renders "HTTP/1.1 <code> <text>\r\n".
func StatusLine(code int, text string) string {
	return Version + " " + strconv.Itoa(code) + " " + text + "\r\n"
}
