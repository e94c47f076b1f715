package livereload

import (
	"encoding/json"
	"fmt"
)

// EventsPath returns the SSE endpoint served next to the client runtime.
func EventsPath(clientPath string) string {
	return clientPath + "/events"
}

const clientTemplate = `// devserver client runtime
const eventsURL = %s;

function connect() {
  const es = new EventSource(eventsURL);
  es.addEventListener('connected', () => console.debug('[devserver] connected.'));
  es.addEventListener('full-reload', (e) => {
    let payload = {};
    try { payload = JSON.parse(e.data); } catch (_) {}
    const pagePath = decodeURI(location.pathname);
    if (!payload.path || payload.path === pagePath || (payload.path.endsWith('/index.html') && pagePath + 'index.html' === payload.path)) {
      location.reload();
    }
  });
  es.onerror = () => {
    console.warn('[devserver] connection lost, polling for restart...');
    es.close();
    setTimeout(() => location.reload(), 1000);
  };
}

connect();

export {};
`

// ClientScript returns the client runtime module. eventsURL is the SSE
// endpoint including the base path.
func ClientScript(eventsURL string) string {
	lit, _ := json.Marshal(eventsURL)
	return fmt.Sprintf(clientTemplate, lit)
}
