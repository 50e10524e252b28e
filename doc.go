/*
Package nerve is the execution core of a gapless audio player.

Concept

A pipeline is described in configuration files as threads holding named
sections of stages. Every section names the section that follows it, so the
sections form one chain across all threads:

    thread "decode" {
        section "in" {
            input wav;
            process reframe as frames;
            next "out";
        }
    }
    thread "play" {
        section "out" {
            output portaudio;
            observe meter;
        }
    }

Package config parses and links the description. Package scheduler builds
the stages and runs one job per thread; jobs exchange packets through the
bounded queues of package pipe.

Packets

A Packet carries either audio or a control event. Load and Skip are
commands for the input stage; it turns them into Abandon so everything
buffered for the old position is dropped. Flush pauses playback and Finish
ends the stream. Control events are written with wipe semantics: they
replace whatever is still queued in front of them.

Stages

Every stage implements SimpleStage. Input stages produce audio, process and
output stages transform it through ProcessStage, and observers see the audio
that was played. A stage may return more output than it was given: it
reports Buffering and is drained through Debuffer before new input is read,
so one step of a section never consumes more than one packet.
*/
package nerve
