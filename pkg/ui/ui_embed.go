package ui

import "github.com/gofiber/fiber/v2"

// IndexHandler serves the joystick page.
func IndexHandler(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.SendString(htmlUI)
}

// The page only forwards pointer events and renders what the server pushes.
const htmlUI = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Joypad</title>
  <meta name="viewport" content="width=device-width, initial-scale=1, user-scalable=no" />
  <style>
    :root { color-scheme: dark; }
    body {
      background: #0f1115; color: #e8e8e8; margin: 0;
      font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial, sans-serif;
      display: flex; flex-direction: column; align-items: center; padding: 16px;
      touch-action: none; user-select: none;
    }
    h2 { margin: 8px 0 12px; font-weight: 600; }
    #joystickContainer {
      position: relative; width: 240px; height: 240px; border-radius: 50%;
      background: #1b1f27; border: 2px solid #2a2f3a;
      box-shadow: inset 0 0 30px rgba(0,0,0,.5);
    }
    #joystick {
      position: absolute; left: 50%; top: 50%; width: 80px; height: 80px;
      border-radius: 50%; background: #3d8bfd; cursor: grab;
      transform: translate(-50%, -50%); transition: all 0.3s ease;
      box-shadow: 0 4px 14px rgba(61,139,253,.6);
    }
    #readout { margin: 16px 0; display: flex; gap: 24px; font-size: 18px; }
    #status { margin: 4px 0 16px; font-weight: 600; min-height: 1.4em; }
    #estop {
      background: #ff4757; color: #fff; border: none; border-radius: 10px;
      padding: 14px 28px; font-size: 18px; font-weight: 700; cursor: pointer;
    }
    #link { font-size: 12px; opacity: .6; margin-top: 12px; }
  </style>
</head>
<body>
  <h2>Joypad</h2>
  <div id="joystickContainer"><div id="joystick"></div></div>
  <div id="readout">
    <div>Speed: <span id="speed">0</span></div>
    <div>Turn: <span id="turn">0</span></div>
  </div>
  <div id="status">Ready</div>
  <button id="estop">EMERGENCY STOP</button>
  <div id="link">connecting…</div>
<script>
  const joystick = document.getElementById('joystick');
  const container = document.getElementById('joystickContainer');
  const speedDisplay = document.getElementById('speed');
  const turnDisplay = document.getElementById('turn');
  const statusDisplay = document.getElementById('status');
  const link = document.getElementById('link');

  let ws = null;
  let dragging = false;

  function send(ev) {
    if (ws && ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify(ev));
  }

  function rect() {
    const r = container.getBoundingClientRect();
    return { left: r.left, top: r.top, width: r.width, height: r.height };
  }

  function point(e) {
    const p = e.touches ? e.touches[0] : e;
    return { x: p.clientX, y: p.clientY };
  }

  function start(e) {
    dragging = true;
    send({ type: 'start' });
    move(e);
  }

  function move(e) {
    if (!dragging) return;
    e.preventDefault();
    const p = point(e);
    send({ type: 'move', x: p.x, y: p.y, rect: rect() });
  }

  function end() {
    if (!dragging) return;
    dragging = false;
    send({ type: 'end' });
  }

  function apply(msg) {
    switch (msg.type) {
      case 'signal':
        speedDisplay.textContent = msg.speed;
        turnDisplay.textContent = msg.turn;
        break;
      case 'handle':
        joystick.style.transition = msg.animate ? 'all 0.3s ease' : 'none';
        joystick.style.transform = 'translate(calc(-50% + ' + msg.x + 'px), calc(-50% + ' + msg.y + 'px))';
        break;
      case 'status':
        statusDisplay.textContent = msg.text;
        statusDisplay.style.color = msg.color;
        break;
    }
  }

  function connect() {
    const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    ws = new WebSocket(proto + location.host + '/ws/joystick');
    ws.onopen = () => { link.textContent = 'connected'; };
    ws.onmessage = (e) => apply(JSON.parse(e.data));
    ws.onclose = () => {
      link.textContent = 'disconnected, retrying…';
      dragging = false;
      setTimeout(connect, 1000);
    };
  }

  joystick.addEventListener('mousedown', start);
  joystick.addEventListener('touchstart', start, { passive: false });
  document.addEventListener('mousemove', move);
  document.addEventListener('touchmove', move, { passive: false });
  document.addEventListener('mouseup', end);
  document.addEventListener('touchend', end);
  document.addEventListener('touchcancel', end);

  document.getElementById('estop').addEventListener('click', async () => {
    try {
      await fetch('/api/v1/estop', { method: 'POST' });
    } catch (err) {
      console.error('Stop error:', err);
    }
  });

  connect();
</script>
</body>
</html>`
