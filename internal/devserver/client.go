package devserver

import (
	"bytes"
)

const (
	livereloadPath   = "/__sitepipe/livereload"
	livereloadScript = "/__sitepipe/livereload.js"
)

var scriptTag = []byte(`<script src="` + livereloadScript + `"></script>`)

const clientJS = `(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var overlay;
  function showError(msg) {
    if (!overlay) {
      overlay = document.createElement("pre");
      overlay.id = "sitepipe-error";
      overlay.style.cssText = "position:fixed;inset:0;margin:0;padding:2em;z-index:2147483647;" +
        "background:rgba(20,20,20,.92);color:#ff6b6b;font:14px/1.4 monospace;white-space:pre-wrap;overflow:auto";
      document.body.appendChild(overlay);
    }
    overlay.textContent = "[" + msg.stage + "] " + msg.message;
  }
  function connect() {
    var ws = new WebSocket(proto + location.host + "` + livereloadPath + `");
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "reload") {
        location.reload();
      } else if (msg.type === "error") {
        showError(msg);
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`

// injectClient inserts the live-reload script tag before the last </body>,
// or appends it when the document has none.
func injectClient(html []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if i < 0 {
		out := make([]byte, 0, len(html)+len(scriptTag))
		return append(append(out, html...), scriptTag...)
	}
	out := make([]byte, 0, len(html)+len(scriptTag))
	out = append(out, html[:i]...)
	out = append(out, scriptTag...)
	return append(out, html[i:]...)
}
