package handler

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// getHeader is a case-insensitive header lookup.
func getHeader(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// getCookie returns the named cookie from the Cookie header.
func getCookie(headers map[string]string, name string) string {
	cookies := getHeader(headers, "Cookie")
	for _, part := range strings.Split(cookies, ";") {
		part = strings.TrimSpace(part)
		if value, ok := strings.CutPrefix(part, name+"="); ok {
			return value
		}
	}
	return ""
}

// requestBody returns the request body, decoding it when API Gateway
// delivered it base64-encoded (binary media types).
func requestBody(req events.APIGatewayProxyRequest) io.Reader {
	body := strings.NewReader(req.Body)
	if req.IsBase64Encoded {
		return base64.NewDecoder(base64.StdEncoding, body)
	}
	return body
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func errorResponse(status int, msg string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"error": msg})
}

func redirect(location string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
	}
}

// withCookies appends Set-Cookie values to resp.
func withCookies(resp events.APIGatewayProxyResponse, cookies ...string) events.APIGatewayProxyResponse {
	if len(cookies) == 0 {
		return resp
	}
	if resp.MultiValueHeaders == nil {
		resp.MultiValueHeaders = make(map[string][]string)
	}
	resp.MultiValueHeaders["Set-Cookie"] = append(resp.MultiValueHeaders["Set-Cookie"], cookies...)
	return resp
}
