package handler

import (
	"net/http"
	"text/template"
	"time"
)

// scriptTemplate is the detect-and-upload helper served to new hosts. It runs
// the upstream detection tool, keeps a stable per-host id, and posts the
// result back to this dashboard.
const scriptTemplate = `#!/bin/bash

# IP quality detection and upload script
# Generated at: {{.GeneratedAt}}
# Usage: curl -fsSL "{{.Proto}}://{{.Host}}/api/script?token=YOUR_TOKEN" | bash

API_URL="{{.APIURL}}"
AUTH_TOKEN="{{.Token}}"

# Stable server id, persisted across runs
ID_FILE="${HOME}/.ip-quality-server-id"

if [ -f "$ID_FILE" ]; then
    SERVER_ID=$(cat "$ID_FILE")
    echo "Using existing server id: $SERVER_ID"
else
    HOSTNAME=$(hostname)
    PRIMARY_IP=$(hostname -I 2>/dev/null | awk '{print $1}' || ip route get 1 2>/dev/null | awk '{print $7}' | head -1)
    SERVER_ID=$(echo "${HOSTNAME}-${PRIMARY_IP}" | md5sum | cut -c1-12)
    echo "$SERVER_ID" > "$ID_FILE"
    echo "Generated server id: $SERVER_ID (saved to $ID_FILE)"
fi

RESULT_FILE="/tmp/ip-quality-result-${SERVER_ID}.json"

echo "Running IP quality detection..."
echo "  server id: $SERVER_ID"
echo "  api url:   $API_URL"

# -y auto-installs tool dependencies
bash <(curl -Ls https://IP.Check.Place) -y -o "$RESULT_FILE"

if [ ! -f "$RESULT_FILE" ]; then
    echo "Detection failed: no result file produced"
    exit 1
fi

echo "Detection complete, uploading..."

# Dual-stack runs emit multiple concatenated JSON objects; slurp into an array
JSON_ARRAY=$(jq -s '.' "$RESULT_FILE")
JSON_COUNT=$(echo "$JSON_ARRAY" | jq 'length')
echo "  found $JSON_COUNT IP result(s)"

PAYLOAD=$(echo "$JSON_ARRAY" | jq --arg id "$SERVER_ID" '{serverId: $id, data: .}')

RESPONSE=$(curl -s -w "\n%{http_code}" -X POST "$API_URL" \
    -H "Content-Type: application/json" \
    -H "Authorization: Bearer $AUTH_TOKEN" \
    -d "$PAYLOAD")

HTTP_CODE=$(echo "$RESPONSE" | tail -1)
BODY=$(echo "$RESPONSE" | sed '$d')

if [ "$HTTP_CODE" = "201" ]; then
    echo "Upload succeeded"
    echo "  response: $BODY"
else
    echo "Upload failed (HTTP $HTTP_CODE)"
    echo "  response: $BODY"
    exit 1
fi

rm -f "$RESULT_FILE"
`

var scriptTmpl = template.Must(template.New("script").Parse(scriptTemplate))

type ScriptHandler struct{}

func NewScriptHandler() *ScriptHandler {
	return &ScriptHandler{}
}

// Generate renders the upload script with the host and scheme of the request
// baked in, so a plain curl-pipe-bash against this instance works unedited.
func (h *ScriptHandler) Generate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = "YOUR_TOKEN_HERE"
	}

	host := r.Host
	if host == "" {
		host = "localhost:8080"
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="detect-and-upload.sh"`)
	_ = scriptTmpl.Execute(w, map[string]string{
		"GeneratedAt": time.Now().UTC().Format(time.RFC3339),
		"Proto":       proto,
		"Host":        host,
		"APIURL":      proto + "://" + host + "/api/servers",
		"Token":       token,
	})
}
