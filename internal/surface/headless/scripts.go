package headless

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsStrings(s []string) string {
	if s == nil {
		s = []string{}
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func playbackRateScript(rate float64) string {
	return fmt.Sprintf(`(() => {
	const v = document.getElementsByTagName("video")[0];
	if (!v) { return -1; }
	v.playbackRate = %g;
	return v.playbackRate;
})()`, rate)
}

// chatFrameReadyScript reports whether the chat frame document is reachable.
func chatFrameReadyScript(sel Selectors) string {
	return fmt.Sprintf(`(() => {
	const f = document.querySelector(%s);
	return !!(f && f.contentDocument && f.contentDocument.readyState !== "loading");
})()`, jsString(sel.ChatFrame))
}

// frameClickScript clicks the first match of target inside the chat frame.
// With onlyVisible set, a hidden element counts as absent.
func frameClickScript(sel Selectors, target string, onlyVisible bool) string {
	return fmt.Sprintf(`(() => {
	const f = document.querySelector(%s);
	const doc = f && f.contentDocument;
	if (!doc) { return false; }
	const el = doc.querySelector(%s);
	if (!el) { return false; }
	if (%t && el.offsetParent === null) { return false; }
	el.click();
	return true;
})()`, jsString(sel.ChatFrame), jsString(target), onlyVisible)
}

func playbackEndedScript(sel Selectors) string {
	return fmt.Sprintf(`(() => {
	const v = document.getElementsByTagName("video")[0];
	if (v && v.ended) { return true; }
	const b = document.querySelector(%s);
	if (!b) { return false; }
	const title = b.getAttribute("title") || b.getAttribute("data-title-no-tooltip") || "";
	return %s.some((t) => title === t || title.startsWith(t + " "));
})()`, jsString(sel.PlayButton), jsStrings(sel.ReplayTitles))
}

// chatElementsScript serializes every rendered chat item. A field whose node
// is missing is emitted as null.
func chatElementsScript(sel Selectors) string {
	return fmt.Sprintf(`(() => {
	const f = document.querySelector(%s);
	const doc = f && f.contentDocument;
	if (!doc) { return null; }
	const text = (root, q) => {
		if (!root) { return null; }
		const n = root.querySelector(q);
		return n ? n.textContent.trim() : null;
	};
	return JSON.stringify(Array.from(doc.querySelectorAll(%s)).map((item) => {
		const content = item.querySelector(%s);
		const img = item.querySelector(%s);
		return {
			timestamp: text(content, %s),
			author_name: text(content, %s),
			message: text(content, %s),
			avatar_url: img ? (img.getAttribute("src") || "") : null,
		};
	}));
})()`,
		jsString(sel.ChatFrame),
		jsString(sel.ChatItem),
		jsString(sel.ChatContent),
		jsString(sel.Avatar),
		jsString(sel.Timestamp),
		jsString(sel.AuthorName),
		jsString(sel.Message),
	)
}

// decodeElements parses the payload produced by chatElementsScript. A null
// payload means the chat frame was not reachable.
func decodeElements(raw *string) ([]crawler.ChatElement, error) {
	if raw == nil {
		return nil, fmt.Errorf("chat frame not available")
	}
	var elements []crawler.ChatElement
	if err := json.Unmarshal([]byte(*raw), &elements); err != nil {
		return nil, fmt.Errorf("decode chat elements: %w", err)
	}
	return elements, nil
}
