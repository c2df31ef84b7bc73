package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Blocker is a page condition that impedes automated progress.
type Blocker string

const (
	BlockerNone     Blocker = ""
	BlockerCaptcha  Blocker = "captcha"
	BlockerAuthWall Blocker = "auth_wall"
)

const probeTimeout = 3 * time.Second

// Every probe below is best effort: failures collapse into a zero value and are never
// returned to the caller.

const dismissOverlaysJS = `() => {
	const labels = ["accept all", "accept", "agree", "i agree", "got it", "allow all", "ok", "close", "no thanks", "dismiss", "continue"];
	const roots = ["#onetrust-banner-sdk", "#CybotCookiebotDialog", "[id*=cookie]", "[class*=cookie]", "[class*=consent]", "[id*=consent]", "[role=dialog]", "[aria-modal=true]", ".modal", ".popup"];
	let clicked = 0;
	for (const rootSel of roots) {
		for (const root of document.querySelectorAll(rootSel)) {
			const style = window.getComputedStyle(root);
			if (style.display === "none" || style.visibility === "hidden") continue;
			for (const btn of root.querySelectorAll("button, [role=button], a")) {
				const text = (btn.innerText || btn.getAttribute("aria-label") || "").trim().toLowerCase();
				if (labels.includes(text)) {
					try { btn.click(); clicked++; } catch (e) {}
					break;
				}
			}
		}
	}
	return String(clicked);
}`

// DismissOverlays clicks through known cookie/consent/modal patterns and returns how many
// were dismissed.
func DismissOverlays(ctx context.Context, page Page) int {
	out, err := evalProbe(ctx, page, dismissOverlaysJS)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return n
}

// detectBlockerJS only reports a CAPTCHA the user would actually face. Invisible reCAPTCHA v3
// and Turnstile widgets, including the reCAPTCHA badge, are ignored.
const detectBlockerJS = `() => {
	const shown = (el) => {
		const r = el.getBoundingClientRect();
		if (r.width < 30 || r.height < 30) return false;
		const s = window.getComputedStyle(el);
		return s.display !== "none" && s.visibility !== "hidden" && s.opacity !== "0";
	};
	const invisibleWidget = (el) => {
		if (el.closest(".grecaptcha-badge, [data-size=invisible], [data-appearance=interaction-only]")) return true;
		return /[?&#]size=invisible/.test(el.getAttribute("src") || "");
	};
	const captcha = [
		"iframe[src*='recaptcha']", "iframe[src*='hcaptcha']", "iframe[src*='challenges.cloudflare.com']",
		".g-recaptcha", ".h-captcha", ".cf-turnstile", "#challenge-form", "#cf-challenge-running", "[data-sitekey]"
	];
	for (const sel of captcha) {
		for (const el of document.querySelectorAll(sel)) {
			if (!invisibleWidget(el) && shown(el)) return "captcha";
		}
	}
	const text = ((document.body && document.body.innerText) || "").toLowerCase();
	if (text.includes("verify you are human") || text.includes("are you a robot")) return "captcha";
	const pw = document.querySelector("input[type=password]");
	const forms = document.querySelectorAll("form").length;
	const links = document.querySelectorAll("a[href]").length;
	if (pw && forms <= 2 && links < 15) return "auth_wall";
	return "";
}`

// DetectBlocker classifies the current page. Detection failures report BlockerNone.
func DetectBlocker(ctx context.Context, page Page) Blocker {
	out, err := evalProbe(ctx, page, detectBlockerJS)
	if err != nil {
		return BlockerNone
	}
	switch Blocker(strings.TrimSpace(out)) {
	case BlockerCaptcha:
		return BlockerCaptcha
	case BlockerAuthWall:
		return BlockerAuthWall
	}
	return BlockerNone
}

const interactiveElementsJS = `() => {
	const sel = "a[href], button, input, select, textarea, [role=button], [role=link], [role=tab], [role=menuitem], [onclick], [contenteditable=true]";
	const out = [];
	for (const el of document.querySelectorAll(sel)) {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		if (r.bottom < 0 || r.top > window.innerHeight) continue;
		const tag = el.tagName.toLowerCase();
		let label = (el.innerText || el.value || el.getAttribute("aria-label") || el.getAttribute("placeholder") || el.getAttribute("title") || "").trim().replace(/\s+/g, " ");
		if (label.length > 60) label = label.slice(0, 60) + "...";
		let selector = tag;
		if (el.id) selector = "#" + CSS.escape(el.id);
		else if (el.getAttribute("name")) selector = tag + "[name=\"" + el.getAttribute("name") + "\"]";
		else if (el.getAttribute("data-testid")) selector = "[data-testid=\"" + el.getAttribute("data-testid") + "\"]";
		const type = el.getAttribute("type") ? " type=" + el.getAttribute("type") : "";
		out.push("[" + out.length + "] <" + tag + type + "> \"" + label + "\" selector=" + selector + " at (" + Math.round(r.x + r.width / 2) + "," + Math.round(r.y + r.height / 2) + ")");
		if (out.length >= 80) break;
	}
	return out.join("\n");
}`

// InteractiveElements returns a line-per-element summary of the visible interactive
// elements, or "" when the page cannot be inspected.
func InteractiveElements(ctx context.Context, page Page) string {
	out, err := evalProbe(ctx, page, interactiveElementsJS)
	if err != nil {
		return ""
	}
	return out
}

// ElementAt describes the element under the viewport point (x, y), for click heatmaps.
func ElementAt(ctx context.Context, page Page, x, y float64) string {
	js := fmt.Sprintf(`() => {
	const el = document.elementFromPoint(%f, %f);
	if (!el) return "";
	let d = el.tagName.toLowerCase();
	if (el.id) d += "#" + el.id;
	const text = (el.innerText || el.getAttribute("aria-label") || "").trim().replace(/\s+/g, " ").slice(0, 40);
	if (text) d += " \"" + text + "\"";
	return d;
}`, x, y)
	out, err := evalProbe(ctx, page, js)
	if err != nil {
		return ""
	}
	return out
}

func evalProbe(ctx context.Context, page Page, js string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("probe panicked: %v", r)
		}
	}()
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return page.Evaluate(pctx, js)
}
