package linepay

import "strings"

type codeInfo struct {
	description string
	retryable   bool
	closed      bool
}

// 主なreturnCode。ここに無いものは終端エラー扱い
var returnCodes = map[string]codeInfo{
	"1101": {description: "purchaser is not a LINE Pay member"},
	"1102": {description: "purchaser cannot use LINE Pay"},
	"1104": {description: "merchant not found"},
	"1105": {description: "merchant cannot use LINE Pay"},
	"1106": {description: "request header is invalid"},
	"1124": {description: "amount or currency does not match"},
	"1141": {description: "payment account error"},
	"1142": {description: "insufficient balance"},
	"1145": {description: "payment is in progress", retryable: true},
	"1150": {description: "transaction not found", closed: true},
	"1152": {description: "transaction already confirmed"},
	"1159": {description: "payment request not found", closed: true},
	"1169": {description: "payment method must be selected in LINE Pay"},
	"1170": {description: "member balance changed", retryable: true},
	"1172": {description: "order id already used"},
	"1180": {description: "payment deadline expired", closed: true},
	"1198": {description: "request is already being processed", retryable: true},
	"1199": {description: "internal request error", retryable: true},
	"1280": {description: "temporary credit card error", retryable: true},
	"1281": {description: "credit card payment error"},
	"1282": {description: "credit card authorization error"},
	"1283": {description: "payment refused"},
	"1284": {description: "payment temporarily unavailable", retryable: true},
	"9000": {description: "gateway internal error", retryable: true},
}

func isRetryableCode(code string) bool {
	if info, ok := returnCodes[code]; ok {
		return info.retryable
	}
	// 190X はメンテナンス等の一時エラー
	return strings.HasPrefix(code, "190")
}

func isTransactionClosedCode(code string) bool {
	return returnCodes[code].closed
}

func describeCode(code string) string {
	if info, ok := returnCodes[code]; ok {
		return info.description
	}
	if strings.HasPrefix(code, "190") {
		return "gateway temporarily unavailable"
	}
	return "payment failed"
}
