package chrome

import (
	"fmt"
	"strconv"

	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

const jsOpenLoginForm = `(function() {
	const trigger = document.querySelector('#registration .popup-manager-trigger[data-target="login"]');
	if (trigger) { trigger.click(); return true; }
	return false;
})()`

// jsReadPopup returns the first popup text carrying K:, X: and Y:, or ''.
const jsReadPopup = `(function() {
	const popups = document.querySelectorAll(
		'.popup, .modal, .tooltip, .tile-info, [class*="popup"], [class*="modal"], [class*="info"]'
	);
	for (const popup of popups) {
		const text = popup.textContent || '';
		if (text.includes('K:') && text.includes('X:') && text.includes('Y:')) {
			return text;
		}
	}
	const body = document.body.textContent || '';
	const match = body.match(/\(K:\d+\s*X:\d+\s*Y:\d+\)/);
	return match ? match[0] : '';
})()`

func jsClickSelector(selector string) string {
	return fmt.Sprintf(`(function() {
	const el = document.querySelector(%s);
	if (el) { el.click(); return true; }
	return false;
})()`, strconv.Quote(selector))
}

func jsFillCredentials(creds viewport.Credentials) string {
	return fmt.Sprintf(`(function() {
	const form = document.querySelector('#login form');
	if (!form) return 'no login form';
	const fill = (input, value) => {
		if (!input) return;
		input.focus();
		input.value = value;
		input.dispatchEvent(new Event('input', { bubbles: true }));
		input.dispatchEvent(new Event('change', { bubbles: true }));
	};
	fill(form.querySelector('input[name="email"]'), %s);
	fill(form.querySelector('input[name="password"]'), %s);
	return 'filled';
})()`, strconv.Quote(creds.Email), strconv.Quote(creds.Password))
}

func jsCanvasKey(key string, keyCode int) string {
	return fmt.Sprintf(`(function() {
	const canvas = document.getElementById('unityCanvas');
	if (!canvas) return false;
	const opts = {key: %[1]s, code: %[1]s, keyCode: %[2]d, which: %[2]d, bubbles: true};
	canvas.focus();
	canvas.dispatchEvent(new KeyboardEvent('keydown', opts));
	canvas.dispatchEvent(new KeyboardEvent('keyup', opts));
	return true;
})()`, strconv.Quote(key), keyCode)
}
