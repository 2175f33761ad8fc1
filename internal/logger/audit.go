package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	auditMu          sync.Mutex
	auditLog         *log.Logger
	auditDumpPayload bool
)

// SetAuditWriter 指定审计日志输出（决策快照 + 解释 Prompt 上下文）。
func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags)
}

// EnableAuditPayloadDump 控制是否记录完整的解释上下文字段。
func EnableAuditPayloadDump(enabled bool) {
	auditMu.Lock()
	auditDumpPayload = enabled
	auditMu.Unlock()
}

type auditSection struct {
	Title string
	Body  string
}

func logAudit(kind, symbol string, sections []auditSection) {
	auditMu.Lock()
	l := auditLog
	dump := auditDumpPayload
	auditMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AUDIT]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if symbol != "" {
		b.WriteString("[")
		b.WriteString(symbol)
		b.WriteString("]")
	}
	for _, sec := range sections {
		body := strings.TrimSpace(sec.Body)
		if body == "" {
			continue
		}
		if !dump && len(body) > 512 {
			body = body[:512] + "…(truncated)"
		}
		b.WriteString("\n--- ")
		b.WriteString(sec.Title)
		b.WriteString(" ---\n")
		b.WriteString(body)
	}
	l.Println(b.String())
}

// AuditDecision 记录一条最终决策及其解释上下文。
func AuditDecision(symbol, classification, context, explanation string) {
	logAudit("decision", symbol, []auditSection{
		{Title: "classification", Body: classification},
		{Title: "context", Body: context},
		{Title: "explanation", Body: explanation},
	})
}
