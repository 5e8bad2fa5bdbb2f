package server

import "net/http"

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(indexHTML)); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// indexHTML is the single-page dashboard: the solar chart plus the merged
// device list, with login links for the OAuth providers.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>HomeFuse</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); min-height: 100vh; }
        .container { max-width: 1200px; margin: 0 auto; background: white; border-radius: 15px; box-shadow: 0 10px 30px rgba(0,0,0,0.2); overflow: hidden; }
        .header { background: linear-gradient(45deg, #2196F3, #21CBF3); color: white; padding: 30px; text-align: center; }
        .header h1 { margin: 0; font-size: 2.5em; font-weight: 300; }
        .header a, .header button { display: inline-block; margin: 10px 5px 0; padding: 10px 18px; border: none; border-radius: 20px; color: white; background: rgba(0,0,0,0.25); text-decoration: none; cursor: pointer; font-size: 0.9em; }
        .content { padding: 30px; }
        .chart-container { position: relative; height: 300px; margin-bottom: 30px; }
        .device { background: #f8f9fa; border-radius: 10px; padding: 20px; margin-bottom: 20px; border-left: 5px solid #2196F3; }
        .device.bosch { border-left-color: #4CAF50; }
        .device.homeconnect { border-left-color: #ff5722; }
        .device h3 { margin: 0 0 5px; }
        .device-source { display: inline-block; padding: 2px 10px; border-radius: 10px; font-size: 0.8em; background: #e3f2fd; color: #1976d2; }
        .capability { display: inline-block; margin: 4px 6px 0 0; padding: 4px 10px; border-radius: 12px; background: #eceff1; font-size: 0.85em; }
        .loading, .error { text-align: center; padding: 30px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>HomeFuse</h1>
            <button onclick="loadDevices()">Refresh Devices</button>
            <a href="/api/smartthings/login">Connect SmartThings</a>
            <a href="/api/homeconnect/login">Connect Home Connect</a>
        </div>
        <div class="content">
            <h2>Solar Production Today</h2>
            <div class="chart-container"><canvas id="solarChart"></canvas></div>
            <div id="devices" class="loading">Loading devices...</div>
        </div>
    </div>

    <script>
        let solarChart;

        async function loadSolarData() {
            try {
                const response = await fetch('/api/solar/today');
                const data = await response.json();
                if (solarChart) {
                    solarChart.destroy();
                }
                const ctx = document.getElementById('solarChart').getContext('2d');
                solarChart = new Chart(ctx, {
                    type: 'line',
                    data: {
                        labels: data.labels,
                        datasets: [{
                            label: 'Solar Production (kW)',
                            data: data.values,
                            borderColor: '#FFA726',
                            backgroundColor: 'rgba(255, 167, 38, 0.1)',
                            borderWidth: 2,
                            fill: true,
                            tension: 0.4
                        }]
                    },
                    options: {
                        responsive: true,
                        maintainAspectRatio: false,
                        scales: {
                            y: { beginAtZero: true, title: { display: true, text: 'Power (kW)' } },
                            x: { title: { display: true, text: 'Time' } }
                        }
                    }
                });
            } catch (error) {
                console.error('Error loading solar data:', error);
            }
        }

        async function loadDevices() {
            const devicesDiv = document.getElementById('devices');
            devicesDiv.innerHTML = '<div class="loading">Loading devices...</div>';
            try {
                const response = await fetch('/api/devices');
                const devices = await response.json();
                if (!devices.length) {
                    devicesDiv.innerHTML = '<div class="loading">No devices found. Connect a provider above.</div>';
                    return;
                }
                devicesDiv.innerHTML = devices.map(device => {
                    const sourceClass = (device.source || '').toLowerCase();
                    const caps = (device.capabilities || []).map(c =>
                        '<span class="capability">' + escapeHtml(c.name) + ': ' + escapeHtml(c.value) + '</span>'
                    ).join('');
                    return '<div class="device ' + sourceClass + '">' +
                        '<h3>' + escapeHtml(device.label || device.name) + '</h3>' +
                        '<span class="device-source">' + escapeHtml(device.source) + '</span> ' +
                        '<span>' + escapeHtml(device.deviceTypeName) + '</span>' +
                        '<div>' + caps + '</div>' +
                        '</div>';
                }).join('');
            } catch (error) {
                devicesDiv.innerHTML = '<div class="error">Error loading devices</div>';
            }
        }

        function escapeHtml(str) {
            const div = document.createElement('div');
            div.textContent = str || '';
            return div.innerHTML;
        }

        loadSolarData();
        loadDevices();
    </script>
</body>
</html>
`
