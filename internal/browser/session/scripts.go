// internal/browser/session/scripts.go
package session

// elementEnvelopeJS resolves an XPath to its first match and runs a body
// against it. Format args: body, encoded XPath.
const elementEnvelopeJS = `(function(xp) {
	const el = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) return {found: false};
	const value = (function(el) { %s })(el);
	return {found: true, value: value === undefined ? null : value};
})(%s)`

const inspectBody = `
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	const cls = typeof el.className === 'string' ? el.className : (el.getAttribute('class') || '');
	return {
		tag: el.tagName.toLowerCase(),
		type: (el.getAttribute('type') || '').toLowerCase(),
		role: el.getAttribute('role') || '',
		class: cls,
		readonly: el.readOnly === true || el.hasAttribute('readonly'),
		ariaHasPopup: (el.getAttribute('aria-haspopup') || '').toLowerCase(),
		checked: el.checked === true,
		value: typeof el.value === 'string' ? el.value : '',
		visible: style.display !== 'none' && style.visibility !== 'hidden' && (rect.width > 0 || rect.height > 0),
		optionCount: el.options ? el.options.length : 0
	};`

const textBody = `return (el.innerText || el.textContent || '').trim();`

const optionsBody = `
	if (!el.options) return [];
	return Array.from(el.options).map(o => ({value: o.value, text: (o.text || '').trim()}));`

const scrollIntoViewBody = `el.scrollIntoView({block: 'center', inline: 'nearest'}); return true;`

const domClickBody = `el.click(); return true;`

const focusBody = `el.focus(); return true;`

const focusAndClearBody = `
	el.focus();
	if ('value' in el) {
		el.value = '';
		el.dispatchEvent(new Event('input', {bubbles: true}));
	} else if (el.isContentEditable) {
		el.textContent = '';
	}
	return true;`

// selectIndexBody is formatted with the target index.
const selectIndexBody = `
	const i = %d;
	if (!el.options || i < 0 || i >= el.options.length) return false;
	el.selectedIndex = i;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;`

const pointerEventsBody = `
	const rect = el.getBoundingClientRect();
	const opts = {bubbles: true, cancelable: true, view: window, clientX: rect.left + rect.width / 2, clientY: rect.top + rect.height / 2};
	['pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click'].forEach(type => {
		const Ctor = type.startsWith('pointer') && window.PointerEvent ? PointerEvent : MouseEvent;
		el.dispatchEvent(new Ctor(type, opts));
	});
	return true;`

// snapshotJS returns the visibility of every match, in document order.
const snapshotJS = `(function(xp) {
	const snap = document.evaluate(xp, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < snap.snapshotLength; i++) {
		const el = snap.snapshotItem(i);
		if (el.nodeType !== 1) { out.push(false); continue; }
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		out.push(style.display !== 'none' && style.visibility !== 'hidden' && (rect.width > 0 || rect.height > 0));
	}
	return out;
})(%s)`

const pageTextJS = `document.body ? document.body.innerText : ''`

const (
	scrollTopJS    = `(function() { window.scrollTo(0, 0); return true; })()`
	scrollBottomJS = `(function() { window.scrollTo(0, document.body ? document.body.scrollHeight : 0); return true; })()`
)
