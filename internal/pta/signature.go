package pta

import (
	"fmt"
	"strings"
)

// DeclaringTypeName extracts the declaring type from a method signature of
// the form <pkg.Type: ret name(params)>.
func DeclaringTypeName(sig string) (string, error) {
	if !strings.HasPrefix(sig, "<") {
		return "", fmt.Errorf("signature %q does not start with '<'", sig)
	}
	colon := strings.IndexByte(sig, ':')
	if colon < 0 {
		return "", fmt.Errorf("signature %q has no ':' separator", sig)
	}
	if colon == 1 {
		return "", fmt.Errorf("signature %q has an empty declaring type", sig)
	}
	return sig[1:colon], nil
}

// ReceiverName is the conventional name of the receiver of method sig, used
// when the database names an instance method without naming its receiver.
func ReceiverName(sig string) string {
	return sig + "/@this"
}

func checkMethodKey(key string) string {
	if err := checkPlainKey(key); err != "" {
		return err
	}
	if !strings.HasSuffix(key, ">") {
		return "signature must end with '>'"
	}
	if _, err := DeclaringTypeName(key); err != nil {
		return err.Error()
	}
	return ""
}

func checkPlainKey(key string) string {
	if key == "" {
		return "empty key"
	}
	if strings.ContainsAny(key, "\t\n\r") {
		return "key contains a tab or line break"
	}
	return ""
}
